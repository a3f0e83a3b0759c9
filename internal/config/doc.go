// Package config loads orderdesk settings.
//
// # Resolution
//
//  1. An explicit -config path, else ~/.config/orderdesk/config.toml
//  2. A missing file means defaults, not an error
//  3. ORDERDESK_<FIELD> environment variables override file values; the
//     binary loads a .env file from the working directory first
//  4. Empty values fall back to defaults
//
// # Example
//
//	api_url = "https://script.google.com/macros/s/<deployment>/exec"
//	request_timeout = "15s"
//	retry = 1
//	retry_delay = "700ms"
//	catalog_ttl = "12h"
//	orders_refresh = "5m"
//	store_backend = "file"   # file, memory, redis, postgres
//	data_dir = "~/.local/share/orderdesk"
//	redis_addr = "127.0.0.1:6379"
//	postgres_dsn = "postgres://orderdesk@localhost/orderdesk"
//	store_lock = "North"
//	stores = ["North", "South"]
//
// Durations use time.ParseDuration syntax. retry = 0 disables retries; leaving
// it out keeps the default of one retry.
//
// Derived paths: LogPath is <data_dir>/orderdesk.log and StoreDir is
// <data_dir>/store.
package config
