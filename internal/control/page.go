package control

const indexPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Shutdown</title>
<style>
  body { background: #121212; color: #e0e0e0; font-family: sans-serif;
         display: flex; align-items: center; justify-content: center; height: 100vh; margin: 0; }
  button { background: #b00020; color: #fff; border: none; border-radius: 8px;
           padding: 24px 48px; font-size: 1.5em; cursor: pointer; }
  button:active { background: #7f0016; }
</style>
</head>
<body>
<form id="shutdown" method="post" action="/trigger_shutdown">
  <button type="submit">Shut down</button>
</form>
<script>
  document.getElementById("shutdown").addEventListener("submit", function (e) {
    if (!confirm("Shut down the onboard computer now?")) {
      e.preventDefault();
    }
  });
</script>
</body>
</html>
`
