package board

const boardHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>worktrack board</title>
  <link rel="stylesheet" href="styles.css"/>
</head>
<body>
  <header>
    <h1>worktrack</h1>
    <span id="updated"></span>
  </header>
  <main id="board"></main>
  <script>
    async function load() {
      const res = await fetch('api/items');
      const data = await res.json();
      const board = document.getElementById('board');
      board.innerHTML = '';
      for (const state of data.states) {
        const col = document.createElement('section');
        col.className = 'column';
        const items = (data.items || []).filter(i => i.state === state);
        col.innerHTML = '<h2>' + state + ' <span class="count">' + items.length + '</span></h2>';
        for (const item of items) {
          const card = document.createElement('article');
          card.className = 'card';
          let html = '<h3>' + esc(item.title) + '</h3>';
          html += '<p class="uid">' + esc(item.uid) + '</p>';
          if (item.assignee) html += '<p class="assignee">@' + esc(item.assignee) + '</p>';
          for (const label of item.labels || []) {
            html += '<span class="label">' + esc(label) + '</span>';
          }
          for (const c of item.comments || []) {
            html += '<p class="comment"><time>' + esc(c.timestamp) + '</time> ' + esc(c.message) + '</p>';
          }
          html += '<p class="ts">' + esc(item.updated_at) + '</p>';
          card.innerHTML = html;
          col.appendChild(card);
        }
        board.appendChild(col);
      }
      document.getElementById('updated').textContent = new Date().toLocaleTimeString();
    }
    function esc(s) {
      return String(s).replace(/[&<>"']/g, c => ({'&':'&amp;','<':'&lt;','>':'&gt;','"':'&quot;',"'":'&#39;'}[c]));
    }
    load();
    setInterval(load, 5000);
  </script>
</body>
</html>
`

const boardCSS = `:root {
  --bg: #f4f5f7;
  --card: #ffffff;
  --ink: #172b4d;
  --muted: #6b778c;
  --accent: #0052cc;
}
* { box-sizing: border-box; }
body {
  margin: 0;
  font-family: -apple-system, "Segoe UI", Roboto, sans-serif;
  background: var(--bg);
  color: var(--ink);
}
header {
  display: flex;
  align-items: baseline;
  gap: 1rem;
  padding: 0.75rem 1.25rem;
  background: var(--accent);
  color: #fff;
}
header h1 { margin: 0; font-size: 1.1rem; }
header span { font-size: 0.8rem; opacity: 0.8; }
main {
  display: flex;
  gap: 1rem;
  padding: 1rem;
  align-items: flex-start;
  overflow-x: auto;
}
.column {
  flex: 1 0 16rem;
  background: #ebecf0;
  border-radius: 6px;
  padding: 0.5rem;
}
.column h2 {
  margin: 0.25rem 0.5rem 0.5rem;
  font-size: 0.85rem;
  text-transform: uppercase;
  color: var(--muted);
}
.count { font-weight: normal; }
.card {
  background: var(--card);
  border-radius: 4px;
  box-shadow: 0 1px 1px rgba(9, 30, 66, 0.25);
  padding: 0.6rem 0.7rem;
  margin-bottom: 0.5rem;
}
.card h3 { margin: 0 0 0.2rem; font-size: 0.95rem; }
.uid { margin: 0; font-size: 0.7rem; color: var(--muted); font-family: monospace; }
.assignee { margin: 0.25rem 0 0; font-size: 0.8rem; color: var(--accent); }
.label {
  display: inline-block;
  margin: 0.3rem 0.3rem 0 0;
  padding: 0.05rem 0.45rem;
  border-radius: 10px;
  background: #deebff;
  color: var(--accent);
  font-size: 0.7rem;
}
.comment {
  margin: 0.4rem 0 0;
  padding-left: 0.5rem;
  border-left: 2px solid #dfe1e6;
  font-size: 0.78rem;
}
.comment time { color: var(--muted); font-size: 0.7rem; }
.ts { margin: 0.4rem 0 0; font-size: 0.7rem; color: var(--muted); text-align: right; }
`
