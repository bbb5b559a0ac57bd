/*

Process of check reduction

Function (ir) ->
	collect ->
Memory Operations (mop) ->
	cover (dom, loop, alias) ->
Candidate Coverage Edges ->
	df ->
Unblocked Edges ->
	recur ->
Surviving Checks ->
	sanitizer ->
Check Masks per Memory Operation

Function text comes from a yaml fixture (fixture)
or from a Go package in ssa form (ssafront).

*/
package compiler
