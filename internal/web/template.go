package web

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"time"

	"github.com/sweeney/espresso/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	// num formats a reading; failed sensors read NaN.
	"num": func(f float32) string {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return "n/a"
		}
		return fmt.Sprintf("%.2f", f)
	},
	"pct": func(f float32) string {
		return fmt.Sprintf("%.0f%%", f*100)
	},
	"onOff": func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Espresso</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.brewing { color: green; font-weight: bold; }
.idle { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Espresso{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Brew</h2>
<table>
<tr><th>State</th><td id="brew-state" class="{{if eq (stateOrUnknown (printf "%s" .State)) "BREWING"}}brewing{{else if eq (stateOrUnknown (printf "%s" .State)) "IDLE"}}idle{{else}}unknown{{end}}">{{stateOrUnknown (printf "%s" .State)}}</td></tr>
<tr><th>Mode</th><td>{{.Machine.Mode}}</td></tr>
{{with .Latest}}<tr><th>Pressure</th><td id="pressure">{{num .Pressure}} bar</td></tr>
<tr><th>Boiler</th><td id="boiler-temp">{{num .BoilerTemp}} °C</td></tr>
<tr><th>Pump flow</th><td id="pump-flow">{{num .PumpFlow}} g/s</td></tr>
<tr><th>Espresso flow</th><td id="espresso-flow">{{num .EspressoFlow}} g/s</td></tr>
<tr><th>Weight</th><td id="weight">{{num .EstimatedWeight}} g</td></tr>
<tr><th>CPS</th><td id="cps">{{.CPS}}</td></tr>{{else}}<tr><th>Snapshot</th><td class="unknown">none yet</td></tr>{{end}}
</table>

<h2>Machine</h2>
<table>
<tr><th>Pump</th><td>{{pct .Machine.Snapshot.PumpPct}}</td></tr>
<tr><th>Valve</th><td>{{if .Machine.Snapshot.ValveOpen}}open{{else}}closed{{end}}</td></tr>
<tr><th>Boiler relay</th><td>{{onOff .Machine.Snapshot.BoilerOn}}</td></tr>
<tr><th>Brew button</th><td>{{onOff .Machine.Snapshot.BrewButton}}</td></tr>
<tr><th>Steam button</th><td>{{onOff .Machine.Snapshot.SteamButton}}</td></tr>
<tr><th>Setpoint</th><td>{{num .Machine.BrewTempSetpoint}} °C</td></tr>
</table>

<h2>Shot Profile</h2>
<table>
<tr><th>Pressure</th><td>{{num .Shot.Pressure}} bar</td></tr>
<tr><th>Flow restriction</th><td>{{num .Shot.FlowRestriction}} g/s</td></tr>
<tr><th>Dose</th><td>{{num .Shot.GrainsWeightIn}} g</td></tr>
<tr><th>Yield</th><td>{{num .Shot.EspressoYield}}</td></tr>
<tr><th>Initialisation</th><td>{{.Shot.Initialisation}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Config.BLEPort}}<tr><th>BLE bridge</th><td>{{.Config.BLEPort}}</td></tr>{{end}}
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Shots</h2>
<table>
<tr><th>Started</th><td>{{.Counts.Started}}</td></tr>
<tr><th>Released</th><td>{{.Counts.Released}}</td></tr>
<tr><th>Completed</th><td>{{.Counts.Completed}}</td></tr>
<tr><th>Fail-safe</th><td>{{.Counts.FailSafe}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>CPS window</th><td>{{.Config.WindowMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
{{if .Config.Simulated}}<tr><th>Peripherals</th><td class="unknown">simulated</td></tr>{{end}}
</table>

<p><a href="/index.json">JSON</a> · <a href="/history.json">history</a> · <a href="/shot_config">shot_config</a></p>
{{if .Config.WSBroker}}
<script src="https://unpkg.com/mqtt/dist/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var prefix = "{{.Config.Prefix}}";
  var dot = document.getElementById("live-dot");
  var stateEl = document.getElementById("brew-state");

  function setText(id, v, unit) {
    var el = document.getElementById(id);
    if (!el) return;
    el.textContent = (v === null || v === undefined) ? "n/a" : (v.toFixed ? v.toFixed(2) : v) + (unit || "");
  }

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(prefix + "/snapshot_state");
    client.subscribe(prefix + "/events");
  });

  client.on("reconnect", function() {
    setDot("pending", "reconnecting");
  });

  client.on("offline", function() {
    setDot("err", "offline");
  });

  client.on("error", function() {
    setDot("err", "error");
  });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (t === prefix + "/snapshot_state" && msg) {
        setText("pressure", msg.pressure, " bar");
        setText("boiler-temp", msg.boiler_temp, " °C");
        setText("pump-flow", msg.pump_flow, " g/s");
        setText("espresso-flow", msg.espresso_flow, " g/s");
        setText("weight", msg.estimated_weight, " g");
        setText("cps", msg.cps);
      } else if (msg.shot && stateEl) {
        var brewing = msg.shot.event === "SHOT_START";
        stateEl.textContent = brewing ? "BREWING" : "IDLE";
        stateEl.className = brewing ? "brewing" : "idle";
      }
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
