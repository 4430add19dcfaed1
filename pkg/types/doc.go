// Package types defines the run report shared by the agent and the server.
// RunReport is the JSON document the agent posts to docship-server and the
// record the server stores, persists and evaluates alert rules against.
package types
