package message

// RequestID is a per-exchange correlation identifier. The protocol engine
// that accepted the request (h1.Dispatcher, h2.Conn) stores one in the
// Request's Extensions before calling the application service, so log
// lines and downstream services can correlate an exchange without
// threading an extra parameter through Service.Call.
type RequestID string
