// Package config loads the readyroom.json configuration file.
//
// Every field is optional; unset fields take the defaults of New. Durations are
// written as Go duration strings.
//
// # Configuration File Structure
//
//	{
//	  "listen": {
//	    "tcp": "127.0.0.1:10101",
//	    "http": ":8080"
//	  },
//	  "capacity": 64,
//	  "game": {
//	    "countdownTicks": 10,
//	    "tick": "1s",
//	    "tickInterval": "10ms",
//	    "exchangeInterval": "100ms",
//	    "dwell": "2s",
//	    "replyLines": ["Hello from the other side!"],
//	    "maxChatText": 1024
//	  },
//	  "admission": {
//	    "rate": 20,
//	    "burst": 10
//	  },
//	  "writeTimeout": "10s",
//	  "log": {
//	    "level": "info",
//	    "format": "text"
//	  },
//	  "archive": {
//	    "enabled": true,
//	    "bucket": "readyroom-transcripts",
//	    "prefix": "lobby/",
//	    "region": "us-east-1"
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    errors.PrintError(err)
//	    os.Exit(1)
//	}
//	driver := game.NewDriver(h, cfg.ToGame())
package config
