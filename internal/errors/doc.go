// Package errors provides structured, actionable error messages for the
// tickwire command.
//
// Library packages report plain sentinel errors (see pkg/transport). The
// command layer wraps them in a TickError so a user sees a code, a short
// explanation and, for configuration problems, the offending line of
// tickwire.json.
//
// # Error Categories
//
//   - config: tickwire.json or flag values that fail validation
//   - transport: bind, connect and connection loss
//   - protocol: frames that cannot be encoded or decoded
//   - cli: command line usage
//
// # Error Codes
//
// Each error has a unique code (e.g., "T103") that maps to a short message,
// a detailed explanation and, for some codes, a default hint.
//
// # Usage
//
//	err := errors.New(errors.CodeInvalidTickRate).
//	    WithLocation("tickwire.json", 4, 17).
//	    WithSuggestion("Use a value between 1 and 255")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR T103: Invalid tick rate
//	//
//	//   tickwire.json:4:17
//	//
//	//        2 │   "server": {
//	//        3 │     "addr": ":7564",
//	//   →    4 │     "tickRate": 0
//	//          │                 ^
//	//        5 │   }
//	//        6 │ }
//	//
//	//   The tick rate must be between 1 and 255 ticks per second.
//	//
//	//   Hint: Use a value between 1 and 255
package errors
