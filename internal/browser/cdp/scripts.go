package cdp

// openShadowScript runs before page scripts and forces every shadow root
// open, so consent widgets attached as closed roots stay searchable.
const openShadowScript = `(() => {
  const attach = Element.prototype.attachShadow;
  Element.prototype.attachShadow = function (init) {
    return attach.call(this, Object.assign({}, init, { mode: "open" }));
  };
})();`

const bodyTextScript = `document.body ? document.body.innerText.slice(0, 4000) : ""`

const scrollScript = `(() => { window.scrollBy(0, Math.round(window.innerHeight / 2)); return true; })()`

const storageScript = `(() => {
  const items = [];
  try {
    for (let i = 0; i < localStorage.length; i++) {
      const key = localStorage.key(i);
      items.push({ key: key, value: localStorage.getItem(key) || "" });
    }
  } catch (e) {}
  return { origin: location.origin, items: items };
})()`

// scopeScript implements browser.Scope inside the page. It is called with
// (op, host, arg, cfg) and returns a plain object decoded as scopeResult.
const scopeScript = `function (op, host, arg, cfg) {
  function visible(el) {
    if (!el || !el.isConnected) return false;
    const st = window.getComputedStyle(el);
    if (st.display === "none" || st.visibility === "hidden" || parseFloat(st.opacity) === 0) return false;
    const r = el.getBoundingClientRect();
    return r.width > 0 && r.height > 0;
  }
  function query(root, sel) {
    try { return Array.from(root.querySelectorAll(sel)); } catch (e) { return []; }
  }
  function first(root, sel) {
    return query(root, sel).find(visible) || null;
  }
  function collapse(s) {
    return (s || "").replace(/\s+/g, " ").trim();
  }
  function label(el) {
    if (el.tagName === "INPUT") return collapse(el.value);
    return collapse(el.innerText || el.textContent) ||
      collapse(el.getAttribute("aria-label")) ||
      collapse(el.getAttribute("title"));
  }
  function parentOf(el) {
    if (el.parentElement) return el.parentElement;
    const r = el.getRootNode();
    return r && r.host ? r.host : null;
  }
  function inConsent(el) {
    for (let cur = el, depth = 0; cur && depth <= cfg.depth; cur = parentOf(cur), depth++) {
      const role = cur.getAttribute("role");
      if (role === "dialog" || role === "alertdialog") return true;
      const cls = typeof cur.className === "string" ? cur.className : "";
      const hay = (cur.tagName + " " + cur.id + " " + cls).toLowerCase();
      for (const kw of cfg.keywords) {
        if (hay.indexOf(kw) >= 0) return true;
      }
    }
    return false;
  }

  let root = document;
  if (host) {
    const h = query(document, host)[0];
    root = h ? h.shadowRoot : null;
    if (!root) return { missing: true };
  }

  switch (op) {
  case "root":
    return { ok: true };
  case "visible":
    return { ok: first(root, arg) !== null };
  case "click": {
    const el = first(root, arg);
    if (!el) return { missing: true };
    const text = label(el);
    el.click();
    return { ok: true, label: text };
  }
  case "controls": {
    let container = root;
    if (arg) {
      container = first(root, arg);
      if (!container) return { missing: true };
    }
    if (!window.__fpRefBase) window.__fpRefBase = Date.now().toString(36);
    window.__fpRefSeq = window.__fpRefSeq || 0;
    const controls = [];
    for (const el of query(container, cfg.interactive)) {
      if (!visible(el)) continue;
      let ref = el.getAttribute("data-fp-ref");
      if (!ref) {
        ref = window.__fpRefBase + "-" + (++window.__fpRefSeq);
        el.setAttribute("data-fp-ref", ref);
      }
      controls.push({ ref: ref, text: label(el), consent: inConsent(el) });
    }
    return { ok: true, controls: controls };
  }
  case "press": {
    const el = query(root, '[data-fp-ref="' + arg + '"]')[0];
    if (!visible(el)) return { stale: true };
    el.click();
    return { ok: true };
  }
  }
  return { missing: true };
}`

// fingerprintScript runs before page scripts and records calls of APIs used
// for browser fingerprinting in window.__footprintFP.
const fingerprintScript = `(() => {
  if (window.__footprintFP) return;
  const log = [];
  Object.defineProperty(window, "__footprintFP", { value: log, enumerable: false });
  const limit = 1000;
  function record(api, method, detail) {
    if (log.length >= limit) return;
    let stack = "";
    try { stack = (new Error().stack || "").split("\n").slice(2, 5).join(" | "); } catch (e) {}
    log.push({ api: api, method: method, detail: String(detail || ""), stack: stack, at: Date.now() });
  }
  function wrap(proto, name, api, detail) {
    if (!proto || typeof proto[name] !== "function") return;
    const orig = proto[name];
    proto[name] = function () {
      record(api, name, detail ? detail(this, arguments) : "");
      return orig.apply(this, arguments);
    };
  }
  function getter(proto, name, api, method) {
    const desc = proto && Object.getOwnPropertyDescriptor(proto, name);
    if (!desc || !desc.get) return;
    const get = desc.get;
    Object.defineProperty(proto, name, {
      configurable: true,
      get: function () { record(api, method || name, ""); return get.call(this); },
    });
  }
  try {
    const size = (c) => c.width + "x" + c.height;
    wrap(HTMLCanvasElement.prototype, "toDataURL", "canvas", size);
    wrap(HTMLCanvasElement.prototype, "toBlob", "canvas", size);
    wrap(CanvasRenderingContext2D.prototype, "getImageData", "canvas", (_, a) => Array.from(a).slice(0, 4).join(","));
  } catch (e) {}
  try {
    const params = { 0x1F00: "VENDOR", 0x1F01: "RENDERER", 0x1F02: "VERSION", 0x9245: "UNMASKED_VENDOR_WEBGL", 0x9246: "UNMASKED_RENDERER_WEBGL" };
    [window.WebGLRenderingContext, window.WebGL2RenderingContext].forEach((ctx) => {
      if (!ctx) return;
      const proto = ctx.prototype;
      const getParameter = proto.getParameter;
      proto.getParameter = function (p) {
        if (params[p]) record("webgl", "getParameter", params[p]);
        return getParameter.apply(this, arguments);
      };
      wrap(proto, "getExtension", "webgl", (_, a) => a[0]);
      wrap(proto, "getSupportedExtensions", "webgl");
    });
  } catch (e) {}
  try {
    ["AudioContext", "OfflineAudioContext"].forEach((name) => {
      const Orig = window[name];
      if (typeof Orig !== "function") return;
      const Hooked = function () {
        record("audio", name, Array.from(arguments).join(","));
        return new Orig(...arguments);
      };
      Hooked.prototype = Orig.prototype;
      Object.defineProperty(Hooked, "name", { value: name });
      window[name] = Hooked;
    });
    if (window.AnalyserNode) wrap(AnalyserNode.prototype, "getFloatFrequencyData", "audio");
  } catch (e) {}
  try {
    ["hardwareConcurrency", "deviceMemory", "languages", "platform", "plugins", "mimeTypes"].forEach((p) => getter(Navigator.prototype, p, "navigator"));
    ["colorDepth", "pixelDepth"].forEach((p) => getter(Screen.prototype, p, "navigator", "screen." + p));
  } catch (e) {}
  try {
    if (document.fonts && document.fonts.check) {
      const check = document.fonts.check.bind(document.fonts);
      document.fonts.check = function (font, text) {
        record("font", "fonts.check", font);
        return check(font, text);
      };
    }
  } catch (e) {}
  try {
    let reads = 0;
    const getItem = Storage.prototype.getItem;
    Storage.prototype.getItem = function (key) {
      if (++reads <= 5) record("storage", "getItem", key);
      return getItem.apply(this, arguments);
    };
    if (window.indexedDB) {
      const open = indexedDB.open.bind(indexedDB);
      indexedDB.open = function (name, version) {
        record("storage", "indexedDB.open", name);
        return version === undefined ? open(name) : open(name, version);
      };
    }
  } catch (e) {}
})();`

const fingerprintLogScript = `(window.__footprintFP || []).slice()`

// callAPIScript calls window[%s][%s]() when it is a function.
const callAPIScript = `(() => {
  const o = window[%s];
  if (!o || typeof o[%s] !== "function") return false;
  o[%s]();
  return true;
})()`
