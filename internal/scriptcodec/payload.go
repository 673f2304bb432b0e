package scriptcodec

import (
	"encoding/json"

	"github.com/kt3k/vmsync/internal/model"
)

// payloadV2 is the preferred read shape; writes use payloadV1.
type payloadV2 struct {
	Version int                `json:"version"`
	Custom  json.RawMessage    `json:"custom,omitempty"`
	Config  map[string]any     `json:"config,omitempty"`
	Props   model.PayloadProps `json:"props,omitempty"`
	Code    string             `json:"code"`
}

// payloadV1 is the compatibility shape all writes use so older clients can
// still read what this core produces.
type payloadV1 struct {
	Version int           `json:"version"`
	More    payloadV1More `json:"more"`
	Code    string        `json:"code"`
}

type payloadV1More struct {
	Custom      json.RawMessage `json:"custom,omitempty"`
	Enabled     *bool           `json:"enabled,omitempty"`
	Update      *bool           `json:"update,omitempty"`
	LastUpdated int64           `json:"lastUpdated,omitempty"`
}

// EncodeV1 serializes data using the v1 wire shape (spec.md §4.1). This is
// the shape used for every write, for cross-client compatibility.
func EncodeV1(data model.ScriptData) ([]byte, error) {
	p := payloadV1{
		Version: 1,
		Code:    data.Code,
		More: payloadV1More{
			Custom:      data.Custom,
			LastUpdated: data.Props.LastUpdated,
		},
	}
	if v, ok := data.Config["enabled"].(bool); ok {
		p.More.Enabled = &v
	}
	if v, ok := data.Config["shouldUpdate"].(bool); ok {
		p.More.Update = &v
	}
	return json.Marshal(p)
}

// EncodeV2 serializes data using the v2 wire shape.
func EncodeV2(data model.ScriptData) ([]byte, error) {
	p := payloadV2{
		Version: CurrentVersion,
		Custom:  data.Custom,
		Config:  data.Config,
		Props:   data.Props,
		Code:    data.Code,
	}
	return json.Marshal(p)
}

// Parse decodes a remote script blob. If the blob is not valid JSON, the
// entire blob is treated as the script code so the reconciler can still
// import foreign content (spec.md §4.1).
func Parse(blob []byte) model.ScriptData {
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(blob, &probe); err != nil {
		return model.ScriptData{Code: string(blob)}
	}

	switch probe.Version {
	case 2:
		var p payloadV2
		if err := json.Unmarshal(blob, &p); err != nil {
			return model.ScriptData{Code: string(blob)}
		}
		return model.ScriptData{
			Custom: p.Custom,
			Config: p.Config,
			Props:  p.Props,
			Code:   p.Code,
		}
	case 1:
		var p payloadV1
		if err := json.Unmarshal(blob, &p); err != nil {
			return model.ScriptData{Code: string(blob)}
		}
		data := model.ScriptData{
			Custom: p.More.Custom,
			Code:   p.Code,
			Props:  model.PayloadProps{LastUpdated: p.More.LastUpdated},
		}
		if p.More.Enabled != nil || p.More.Update != nil {
			data.Config = map[string]any{}
			if p.More.Enabled != nil {
				data.Config["enabled"] = *p.More.Enabled
			}
			if p.More.Update != nil {
				data.Config["shouldUpdate"] = *p.More.Update
			}
		}
		return data
	default:
		// Unknown or absent version: JSON parsed but shape is unrecognized.
		// Fall back to code-only, same as an outright parse failure.
		return model.ScriptData{Code: string(blob)}
	}
}
