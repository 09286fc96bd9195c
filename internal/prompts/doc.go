// Package prompts loads named prompt templates from an XML file of the form
//
//	<prompts>
//	  <prompt name="clarification">...</prompt>
//	</prompts>
//
// A default file with clarification, system and thinking templates is
// written when none exists. Watch keeps the loaded set in sync with the file.
package prompts
