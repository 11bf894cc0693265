/*
Package cli provides command-line interface utilities for Helios.

The cli package includes output formatters, progress reporters, and common
CLI helpers used by the helios command.

Output Formatting:

The cli package supports multiple output formats (text, JSON, CSV) for
displaying command results:

	formatter := cli.NewFormatter(cli.FormatJSON)
	data := MyCommandResult{...}
	if err := formatter.FormatTo(os.Stdout, data); err != nil {
		return err
	}

CSV output works on anything implementing the Table interface:

	type attemptTable []*journal.Entry

	func (t attemptTable) Headers() []string { ... }
	func (t attemptTable) Rows() [][]string  { ... }

Progress Reporting:

For long-running operations such as load tests, use the progress reporter:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(totalItems)
	for i := 0; i < totalItems; i++ {
		// Do work
		progress.Update(int64(i + 1))
	}
	progress.Finish()

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx := cli.SetupSignalHandler()
	// Use ctx for operations that should be cancelled on shutdown
*/
package cli
