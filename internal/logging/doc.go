// Package logger provides leveled logging for cipherroom commands and the
// messaging core.
//
// The logger supports multiple verbosity levels controlled by command-line
// flags. Output is formatted with colored prefixes.
//
// # Verbosity Levels
//
//   - --verbose: Shows info and warning messages
//   - --debug: Shows all messages including debug details and errors
//
// Without flags, only critical warnings are shown. Records dropped because
// they failed decryption are reported through Errorf, so they surface with
// --debug but never interrupt normal output.
//
// # Log Methods
//
//	Logger.Infof()          // Shown with --verbose or --debug
//	Logger.Debugf()         // Shown only with --debug
//	Logger.Warnf()          // Shown with --verbose or --debug
//	Logger.WarnfAlways()    // Always shown
//	Logger.Errorf()         // Shown with --debug
//	Logger.ErrorfAndReturn() // Errorf plus a returned error
//
// # Usage
//
//	log := Logger{Verbose: verbose, Debug: debug}
//	log.Infof("Loaded %d records", count)
//
// Out and Err may be set to capture output in tests.
package logger
