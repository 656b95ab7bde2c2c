// Package engine runs shell scripts as child processes attached to
// pseudo-terminals. Each execution streams its merged terminal output to a
// single consumer in real time, accepts interactive input forwarded to the
// PTY, enforces a wall-clock timeout, and keeps a bounded rolling cache of
// output so a detached consumer can reattach and catch up.
package engine
