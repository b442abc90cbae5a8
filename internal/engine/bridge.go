package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/chromedp/cdproto/runtime"
	"github.com/pagecap/pagecap/internal/orchestrate"
)

// bridgeBinding is the CDP binding name backing the script bridge object.
const bridgeBinding = "__pagecap_emit"

// bridgeBootstrap builds the document-start script that installs
// window[<name>] with log and done entry points on top of the CDP binding.
func bridgeBootstrap(objName string) string {
	return fmt.Sprintf(`(function() {
	window[%q] = {
		log: function(m) { %s(JSON.stringify({kind: "log", message: String(m)})); },
		done: function(m) { %s(JSON.stringify({kind: "done", message: String(m)})); }
	};
})();`, objName, bridgeBinding, bridgeBinding)
}

type bridgeMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// handleBinding surfaces script bridge calls. log messages are purely
// observational. A done tag equal to the configured expect-alert string is
// treated like a matching alert; otherwise done is logged and ignored, so
// the bridge never participates in readiness unless explicitly wired.
func (p *Page) handleBinding(e *runtime.EventBindingCalled) {
	if e.Name != bridgeBinding {
		return
	}
	var msg bridgeMessage
	if err := json.Unmarshal([]byte(e.Payload), &msg); err != nil {
		slog.Debug("malformed script bridge payload", "payload", e.Payload)
		return
	}

	switch msg.Kind {
	case "log":
		if !p.cfg.Silent {
			slog.Info("script bridge", "message", msg.Message)
		}
	case "done":
		if p.cfg.ExpectAlert != "" && msg.Message == p.cfg.ExpectAlert {
			p.sink.Post(orchestrate.AlertMatched{})
			return
		}
		if !p.cfg.Silent {
			slog.Info("script bridge done", "tag", msg.Message)
		}
	}
}
