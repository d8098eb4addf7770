package browser

// stealthScript is evaluated on every new document before any site script
// runs. It removes the obvious automation markers headless Chrome leaves
// behind; the site's bot detection checks at least navigator.webdriver and
// the plugin list.
const stealthScript = `
(() => {
  Object.defineProperty(navigator, 'webdriver', { get: () => undefined });

  if (!window.chrome) {
    window.chrome = { runtime: {} };
  }

  Object.defineProperty(navigator, 'plugins', {
    get: () => [
      { name: 'PDF Viewer', filename: 'internal-pdf-viewer' },
      { name: 'Chrome PDF Viewer', filename: 'internal-pdf-viewer' },
      { name: 'Chromium PDF Viewer', filename: 'internal-pdf-viewer' },
    ],
  });

  Object.defineProperty(navigator, 'languages', {
    get: () => ['sv-SE', 'sv', 'en'],
  });

  const originalQuery = window.navigator.permissions.query;
  window.navigator.permissions.query = (parameters) =>
    parameters.name === 'notifications'
      ? Promise.resolve({ state: Notification.permission })
      : originalQuery(parameters);
})();
`

// consentScript clicks through the cookie-consent banner when present so it
// does not cover the widgets the extractors need. Harmless when absent.
const consentScript = `
(() => {
  const selectors = [
    '#onetrust-accept-btn-handler',
    'button[data-test-name="accept-all"]',
    'button.js-cookie-consent-accept',
  ];
  for (const sel of selectors) {
    const btn = document.querySelector(sel);
    if (btn) { btn.click(); return true; }
  }
  return false;
})();
`

// scrollScript nudges lazy-loaded widgets into rendering: scroll to the
// middle, give them a beat, scroll back.
const scrollScript = `
(async () => {
  window.scrollTo(0, document.body.scrollHeight / 2);
  await new Promise(r => setTimeout(r, 1000));
  window.scrollTo(0, 0);
  await new Promise(r => setTimeout(r, 500));
})();
`
