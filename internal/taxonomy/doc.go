// Package taxonomy attributes hosts, URLs and cookie names to tracker entities.
//
// Attribution order for a request is: exact host, parent domains walking up
// the label hierarchy, then URL fingerprints of known ad networks. A miss is
// not an error; callers record the request without an entity.
//
// The built-in table covers the large international operators and the Czech
// advertising market. Custom YAML tables and Disconnect.me services.json
// documents can be merged on top of it.
package taxonomy
