// Command sew translates eclipse scripts and runs them against the reference
// moments of an eclipse, or a simulated shift of them.
package main
