// Package config loads tickwire.json for the tickwire command.
//
// Every field is optional. Missing fields keep the values from Default, and
// flags passed on the command line override both.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "addr": ":7564",
//	    "transport": "tcp",
//	    "tickRate": 30,
//	    "metricsAddr": ":9100"
//	  },
//	  "client": {
//	    "addr": "127.0.0.1:7564",
//	    "transport": "tcp",
//	    "tickRate": 30,
//	    "connectTimeout": "500ms"
//	  },
//	  "clock": {
//	    "windowSize": 16,
//	    "pingEvery": 8
//	  },
//	  "logLevel": "info"
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    errors.Print(os.Stderr, err, errors.StylePretty)
//	    os.Exit(1)
//	}
//
//	fmt.Println("Tick rate:", cfg.Server.TickRate)
//
// Validation failures are *errors.TickError values that point at the
// offending key in the file.
package config
