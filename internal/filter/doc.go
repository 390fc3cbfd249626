// Package filter decides which parsed syscalls reach the live display.
//
// The policy is shared by both platforms; only the failure test differs:
//
//	event ──► allow-list ──miss──► hidden
//	              │
//	              ▼
//	          expression ──false──► hidden
//	              │
//	              ▼
//	          verbose? ──yes──► shown
//	              │no
//	              ▼
//	          failed(event)? ──yes──► shown
//	              │no
//	              ▼
//	            hidden
//
// Filtering never affects aggregation: hidden events are still recorded.
package filter
