// Package notifications sends ntfy push notifications for episode
// processing outcomes and feed refresh failures.
package notifications
