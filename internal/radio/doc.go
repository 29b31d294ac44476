// Package radio abstracts the wireless driver.
//
// Two drivers are provided:
//   - Simulated keeps a table of joinable networks in memory and associates
//     after a configurable delay. It backs tests and the "simulated" driver.
//   - NMCLI drives NetworkManager through the nmcli command line tool.
//
// Both follow the same contract: Begin returns immediately and association
// progress is observed by polling Status.
package radio
