/*
Package relay implements a small JSON API for MyMazda remote commands.

The relay builds a fresh upstream client for every request, discovers which of the client's members
authenticate, list vehicles and start the engine (see [capability.Default]), and reports the names
it matched alongside each result:

	GET  /health       configuration flags and the driver's export shape (no API key)
	GET  /debug        member names of a freshly built client
	GET  /vehicles     {"authedWith", "vehiclesWith", "vehicles"}
	POST /startEngine  {"vid": "..."} -> {"ok", "authedWith", "startWith", "result"}
	GET  /metrics      Prometheus metrics (no API key)

Every route other than /health and /metrics requires the x-api-key header.
*/
package relay
