package view

import (
	"bytes"
	"html/template"
)

// GatedPageData provides the dynamic fields required by the gated page.
// It deliberately has no destination or payload field: the page only knows
// how to reach its session.
type GatedPageData struct {
	Title            string
	SessionPath      string
	RemainingSeconds int
	AutoRedirect     bool
	PollIntervalMS   int
}

var gatedPageTmpl = template.Must(template.New("gated_page").Parse(`
<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8" />
	<meta name="viewport" content="width=device-width, initial-scale=1" />
	<meta name="robots" content="noindex, nofollow" />
	<title>{{.Title}}</title>
	<style>
		:root {
			--bg: #090a0f;
			--card: rgba(255, 255, 255, 0.05);
			--border: rgba(255, 255, 255, 0.15);
			--text: #e7ecff;
			--muted: #a1acc5;
			--accent: #7dd3fc;
			--accent-strong: #38bdf8;
			font-family: "Inter", -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
		}
		* { box-sizing: border-box; }
		body {
			margin: 0;
			min-height: 100vh;
			display: flex;
			align-items: center;
			justify-content: center;
			background: radial-gradient(circle at 20% 20%, #111827, #030712 60%);
			color: var(--text);
		}
		.card {
			background: var(--card);
			border: 1px solid var(--border);
			border-radius: 18px;
			padding: 32px;
			width: min(520px, 92vw);
			box-shadow: 0 45px 100px rgba(0,0,0,0.35);
			text-align: center;
		}
		h1 { font-size: 1.4rem; margin-bottom: 6px; }
		p { color: var(--muted); margin-top: 0; }
		.count { font-size: 3rem; font-weight: 700; margin: 24px 0; }
		button {
			padding: 0 28px;
			height: 48px;
			border: 0;
			border-radius: 999px;
			background: linear-gradient(120deg, var(--accent), var(--accent-strong));
			color: #050708;
			font-weight: 600;
			cursor: pointer;
		}
		button[disabled] { opacity: 0.4; cursor: default; }
		.hidden { display: none; }
	</style>
</head>
<body>
	<div class="card">
		<h1>{{.Title}}</h1>
		<p id="status">Checking your browser…</p>
		<div class="count" id="countdown">{{.RemainingSeconds}}</div>
		<button id="cta" class="{{if .AutoRedirect}}hidden{{end}}" disabled>Continue</button>
		<p id="error" class="hidden">Something went wrong. Please try again later.</p>
	</div>

	<script>
		(function() {
			const base = {{.SessionPath}};
			const auto = {{.AutoRedirect}};
			const pollEvery = {{.PollIntervalMS}};
			const countdown = document.getElementById("countdown");
			const status = document.getElementById("status");
			const cta = document.getElementById("cta");
			const errorBox = document.getElementById("error");
			let done = false;
			let pending = {};

			const post = (path, body) => fetch(base + path, {
				method: "POST",
				headers: { "Content-Type": "application/json" },
				body: body ? JSON.stringify(body) : undefined,
				credentials: "same-origin",
			});

			const navigate = (nav) => {
				if (done || !nav) return;
				done = true;
				const url = nav.codes ? String.fromCharCode.apply(null, nav.codes) : nav.url;
				switch (nav.method) {
				case "assign": window.location.assign(url); break;
				case "replace": window.location.replace(url); break;
				case "anchor": {
					const a = document.createElement("a");
					a.href = url;
					a.rel = "noreferrer";
					document.body.appendChild(a);
					a.click();
					break;
				}
				default: window.location.href = url;
				}
			};

			const fail = () => {
				done = true;
				cta.classList.add("hidden");
				errorBox.classList.remove("hidden");
			};

			const render = (snap) => {
				countdown.textContent = String(snap.remaining || 0);
				if (snap.state === "READY") {
					status.textContent = auto ? "Redirecting…" : "You can continue now.";
					cta.disabled = !snap.can_proceed;
				} else if (snap.state === "GATED") {
					status.textContent = "Please wait…";
				} else if (snap.state === "FAILED") {
					fail();
				}
				if (snap.navigation) navigate(snap.navigation);
			};

			const record = (type, n) => { pending[type] = (pending[type] || 0) + (n || 1); };
			const flush = () => {
				const batch = pending;
				pending = {};
				Object.keys(batch).forEach((type) => {
					post("/events", { type: type, count: batch[type] })
						.then((r) => r.ok ? r.json() : null)
						.then((snap) => snap && render(snap))
						.catch(() => {});
				});
			};

			document.addEventListener("mousemove", () => record("pointer"), { passive: true });
			document.addEventListener("click", () => record("click"), { passive: true });
			document.addEventListener("touchstart", () => record("touch"), { passive: true });
			document.addEventListener("keydown", () => record("key"));

			const poll = () => {
				if (done) return;
				flush();
				fetch(base + "/state", { credentials: "same-origin" })
					.then((r) => r.ok ? r.json() : Promise.reject(r.status))
					.then(render)
					.catch((code) => { if (code === 404 || code === 410) fail(); })
					.finally(() => { if (!done) setTimeout(poll, pollEvery); });
			};
			setTimeout(poll, pollEvery);

			cta.addEventListener("click", () => {
				cta.disabled = true;
				post("/proceed")
					.then((r) => r.json().then((body) => ({ ok: r.ok, status: r.status, body: body })))
					.then((res) => {
						if (res.ok) return navigate(res.body.navigation);
						if (res.status === 500) return fail();
					})
					.catch(fail);
			});

			window.addEventListener("pagehide", () => {
				if (!done && navigator.sendBeacon) navigator.sendBeacon(base + "/abandon");
			});
		})();
	</script>
</body>
</html>
`))

// RenderGatedPage expands the gated page template with the provided data.
func RenderGatedPage(data GatedPageData) (string, error) {
	if data.Title == "" {
		data.Title = "Just a moment..."
	}
	if data.PollIntervalMS <= 0 {
		data.PollIntervalMS = 500
	}
	var buf bytes.Buffer
	if err := gatedPageTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
