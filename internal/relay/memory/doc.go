// Package memory is an in-process relay. One Hub stands in for the server;
// each Client acts as one member. Durable ids are eight hex characters drawn
// from a hub-wide counter, and pushes are delivered synchronously.
package memory
