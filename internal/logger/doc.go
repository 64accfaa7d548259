// Package logger wraps zap to give the ingestion binaries:
//   - a global sugared logger with console or JSON output,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level and format parsing,
//   - shortcuts such as Infof and ErrorKV.
//
// Workers, the registry and the gRPC layer take a context and pull the logger
// from it, so every line carries the slot and source it belongs to.
package logger
