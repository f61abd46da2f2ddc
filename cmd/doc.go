// Package cmd defines the gazettewatch CLI.
//
// Commands:
//   - serve: run the HTTP API and the background fetch scheduler.
//   - fetch: run one fetch-and-store cycle and print the result as JSON.
//   - notify: relay unnotified posts to a Telegram chat once.
//
// Configuration comes from an optional YAML file (--config) and GAZETTE_*
// environment variables; PORT overrides server.port.
package cmd
