// Package logx configures vkrelay's structured logging.
//
// Logger is a small value type on top of zerolog:
//   - console output stays readable (short timestamp + file:line caller)
//   - the optional file sink is JSON, one event per line
//   - the optional chat sink forwards warnings to a Telegram chat, rate limited
//
// A zero Logger discards everything, so components can take one by value
// without nil checks.
package logx
