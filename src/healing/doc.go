// Package healing repairs broken federation links. When a remote user's
// updates stop arriving, a forced gossip exchange with their home node pulls
// the handle registry back in sync; when a single profile is stale, it is
// refetched directly.
package healing
