// Package fileutil holds the small directory helpers procenv needs: creating
// the capture log and address lock directories, and checking that a service
// working directory exists before anything is launched in it.
package fileutil
