package imageworker

import "time"

const EventName = "douyin.product.requested.v1"

type ProductRequestedEventData struct {
	ShareText string `json:"share_text"`
	OutDir    string `json:"out_dir,omitempty"`
	DryRun    bool   `json:"dry_run,omitempty"`
}

type ProductRequestedEnvelope struct {
	EventName string                    `json:"event_name"`
	EventID   string                    `json:"event_id"`
	TS        time.Time                 `json:"ts"`
	Data      ProductRequestedEventData `json:"data"`
}
