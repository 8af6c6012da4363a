// Package main hosts the tgpipeline entrypoint.
//
// Architecture overview:
//   - Sources: internal/source/mtproto reads channel history through a Telegram user session (gotd), and
//     internal/source/webpreview reads the public t.me/s preview with colly when no credentials are available.
//     Both translate platform throttling into scrape.RateLimitError.
//   - Scrape: internal/scrape walks the configured channels strictly in order. Each successful channel becomes one
//     JSON batch under <raw_messages_dir>/<YYYY-MM-DD>/<channel>.json with media under
//     <raw_images_dir>/<YYYY-MM-DD>/<channel>/. Batches are normalized by internal/record so timestamps are fixed-width
//     ISO-8601 UTC strings. Rate-limited channels sleep for the mandated wait and are skipped; failing channels are
//     logged and skipped.
//   - Fanout: finished batches are optionally mirrored to a blob store (memory, local or GCS). Run events go to
//     Pub/Sub when a topic is configured and to a bounded in-memory log otherwise.
//   - Load: internal/load inserts every batch into raw.telegram_messages, one transaction per file, with
//     ON CONFLICT (message_id, channel) DO NOTHING so reloading is idempotent.
//   - Pipeline: `tgpipeline run` executes scrape, load, transform and enrich in order and stops at the first failure.
//     Transform and enrich are external commands from config.
//
// Quick checklist:
//   - Credentials: TELEGRAM_API_ID, TELEGRAM_API_HASH and TELEGRAM_SESSION (or PIPELINE_TELEGRAM_* equivalents),
//     optionally from a .env file. The first mtproto run prompts for the login code on stdin.
//   - Database: PIPELINE_DATABASE_DSN, or POSTGRES_HOST/PORT/DB/USER/PASSWORD.
//   - Run locally: tgpipeline migrate && tgpipeline run --config config.yaml
//   - Ops: set server.port to expose /healthz, /readyz, /metrics, /v1/runs/latest and
//     /v1/runs/events while a run is in progress, or use `tgpipeline serve`.
package main
