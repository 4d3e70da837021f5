// Package worker serializes engine and encoder operations through bounded
// FIFO message queues with a single consumer each, and correlates
// asynchronous responses back to their requests by id.
package worker
