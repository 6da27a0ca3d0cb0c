// Package script runs Lua filters over MI records.
//
// A filter script defines a global function filter(record) returning true
// for records to keep. The record is a table built from its JSON form:
//
//	function filter(r)
//	  if r.kind == "exec" and r.class == "stopped" then
//	    return r.payload.reason ~= "end-stepping-range"
//	  end
//	  return r.kind ~= "log"
//	end
//
// Scripts run in a sandbox with only the base, table, string and math
// libraries; file, OS and module loading functions are removed. A helper
// query(record, path) evaluates a gjson path against the payload.
package script
