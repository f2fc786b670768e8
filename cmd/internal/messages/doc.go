// Package messages is the direct-message core: ingress, the unopened-mailbox
// drain and offset-paged conversation history.
//
// A message moves from unopened to opened exactly once, when the receiver's
// poll (or the receiver's own send) drains it. History shows a partner's
// messages only after that transition.
package messages
