// Package harness runs conformance scenarios against the event store.
//
// A scenario seeds a fresh in-memory store, executes a flow of store
// operations, checks each step against its expect clause and finally
// evaluates assertions over the trace and the store contents.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	setup:
//	  - timestamp: 1000
//	    actor: application://gedit.desktop
//	    subjects:
//	      - uri: file:///home/user/notes.txt
//	flow:
//	  - op: insert
//	    events: [...]
//	    expect:
//	      ids: [2]
//	  - op: find
//	    query:
//	      templates:
//	        - subjects:
//	            - uri: "!file:///tmp/x"
//	      order: least-recent-events
//	    expect:
//	      ids: [1, 2]
//	  - op: set_storage
//	    medium: usb-1
//	    state: not-available
//	  - op: get
//	    ids: [1, 99]
//	    expect:
//	      count: 1
//	  - op: delete
//	    ids: [1]
//	  - op: find
//	    query: { limit: -1 }
//	    expect:
//	      error: INVALID_ARGUMENT
//	assertions:
//	  - type: events
//	    count: 1
//	  - type: table_rows
//	    table: uri
//	    count: 2
//	  - type: storage_state
//	    medium: usb-1
//	    state: not-available
//	  - type: event
//	    id: 2
//	    expect: { actor: application://eog.desktop }
//
// # Assertion Types
//
//   - events: the store holds exactly Count events
//   - table_rows: the named interning table holds exactly Count rows
//   - storage_state: the medium is known and in State
//   - event: the event with ID exists and its fields match Expect (subset)
//   - op_count: the flow ran Op exactly Count times
//
// # Deterministic Testing
//
// Events inserted with a zero timestamp are stamped by a
// testutil.DeterministicClock, and every scenario runs in its own
// in-memory database, so traces are identical across runs and can be
// compared against golden files with RunWithGolden.
package harness
