// Package transport talks to the chat messaging gateway.
//
// Outbound messages go through Client: EvolutionClient posts to an Evolution
// API instance, LogClient records messages to the log for dry runs. Inbound
// webhook payloads are parsed by ParseEvent into Message values.
package transport
