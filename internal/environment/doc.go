// Package environment manages the places pets live in (a kitchen, a
// patio) that devices are linked to.
//
// Environments are stored in the relational store and are referenced by
// devices and by device-environment links (see package device).
package environment
