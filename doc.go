// Wyrdgate is a multi-protocol (HTTP/1.1 and HTTP/2) server engine core: a
// composable Service abstraction, the HTTP/1 and HTTP/2 wire engines built
// on top of it, and the connection-acceptance front door that routes an
// accepted socket to the right one.
//
// See package service for the request/response abstraction every engine is
// built on, package h1 and package h2 for the protocol engines themselves,
// and package accept for the TLS/ALPN front door that ties them to a
// net.Listener.
package wyrdgate
