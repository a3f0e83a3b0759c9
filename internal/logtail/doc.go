// Package logtail reads the orderdesk log file for the in-app log view.
//
// Read keeps the last maxLines in a ring buffer so the file is scanned once
// with memory bounded by maxLines. Filter and CorrelationIDs narrow the view
// to a single remote request: every API call is logged with its cid_ value,
// which is also the id the spreadsheet script records server side.
package logtail
