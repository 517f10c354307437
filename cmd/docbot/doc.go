// Command docbot runs the document bot and its maintenance tooling.
//
// "docbot serve" starts the webhook daemon; "docbot worker" runs a standalone
// task worker against the shared task database. The remaining commands inspect
// and repair local state: conversation records, background tasks, converter
// dependencies and configuration.
package main
