//go:build devfake

package main

import (
	"encoding/json"
	"log"
	"os"

	"github.com/renameflux/renameflux/internal/telegramapi"
)

// Development build: the daemon runs against a scripted in-memory client
// seeded from DEV_CHANNELS_FILE, so the full API and websocket surface
// can be exercised without real credentials.
//
//	{"channels": [{"key": "@src", "id": 1, "title": "Source",
//	               "files": [{"msg_id": 1, "name": "a.mkv", "size": 4096}]}]}
func init() {
	telegramapi.RegisterFactory(func() telegramapi.Client {
		fake := telegramapi.NewFake()
		path := os.Getenv("DEV_CHANNELS_FILE")
		if path == "" {
			return fake
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("read %s: %v", path, err)
		}
		var seed struct {
			Channels []struct {
				Key   string `json:"key"`
				ID    int64  `json:"id"`
				Title string `json:"title"`
				Files []struct {
					MsgID int64  `json:"msg_id"`
					Name  string `json:"name"`
					Size  int64  `json:"size"`
				} `json:"files"`
			} `json:"channels"`
		}
		if err := json.Unmarshal(raw, &seed); err != nil {
			log.Fatalf("parse %s: %v", path, err)
		}
		for _, ch := range seed.Channels {
			fake.AddPeer(ch.Key, telegramapi.Channel{ID: ch.ID, Title: ch.Title})
			for _, f := range ch.Files {
				fake.AddFile(ch.ID, f.MsgID, f.Name, f.Size)
			}
		}
		return fake
	})
}
