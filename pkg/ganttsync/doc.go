// Package ganttsync is the ganttsync application: configuration, the HTTP
// API served to Gantt chart clients and the command line.
//
// The API has two endpoints. GET /load returns the whole project with tasks
// and calendars nested. POST /sync applies a change request in one
// transaction and returns the rows of every added record, so the client can
// replace its placeholder identifiers with the stored ones.
//
// Configuration comes from flags, an optional config file and GANTTSYNC_
// environment variables, in that order of precedence.
package ganttsync
