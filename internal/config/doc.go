// Package config loads blivedm settings.
//
// Settings come from four layers, later ones winning:
//
//  1. Defaults (Default)
//  2. blivedm.json in the working directory, if present
//  3. BLIVEDM_* environment variables, with a .env file loaded first
//  4. Command line flags, applied by the caller
//
// # Configuration File Structure
//
//	{
//	  "rooms": [21452505, 545068],
//	  "logLevel": "info",
//	  "session": {
//	    "heartbeatInterval": "30s",
//	    "handshakeTimeout": "10s"
//	  },
//	  "archive": {
//	    "sqlite": "events.db",
//	    "s3Bucket": "chat-archive",
//	    "s3Prefix": "blivedm"
//	  },
//	  "metrics": { "addr": ":9090" }
//	}
//
// Secrets such as the SESSDATA cookie and open platform keys are better
// kept in the environment:
//
//	BLIVEDM_SESSDATA=...
//	BLIVEDM_OPEN_ACCESS_KEY_ID=...
//	BLIVEDM_OPEN_ACCESS_KEY_SECRET=...
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    return err
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config
