// Package discovery handles how a node joins the swarm and introduces itself:
// building the self-announcement, pushing it to the bootstrap seeds, and
// probing individual domains for their public info.
package discovery
