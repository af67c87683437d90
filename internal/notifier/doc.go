// Package notifier forwards job lifecycle events to a Telegram chat.
//
// Events come from the event bus, are formatted into short messages, queued,
// and sent by a single worker behind a token-bucket rate limit. Identical
// messages inside the dedup window are sent once. Sending is best effort:
// a failing chat never slows down the scheduler.
package notifier
