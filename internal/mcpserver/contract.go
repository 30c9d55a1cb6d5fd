package mcpserver

// AnnotationFormat describes how notes record sync state, for LLM consumers
// that read or edit synced notes.
const AnnotationFormat = `# Dex Sync Annotation Format

A block of a note that has been sent to Dex as a memo carries an inline
annotation directly after the contact link on its first line:

` + "```" + `markdown
- Met [Jane Doe](https://getdex.com/contacts/c_123) %%dex:contact-id=c_123,memo-id=m_456,hash=1a2b3c%%
  - talked about the Q3 roadmap
` + "```" + `

## Fields

- ` + "`" + `contact-id` + "`" + `: the Dex contact the memo belongs to.
- ` + "`" + `memo-id` + "`" + `: the Dex timeline item. Ids starting with ` + "`" + `local-` + "`" + ` are local
  placeholders; the next sync creates a new memo.
- ` + "`" + `hash` + "`" + `: content hash of the block text (annotations removed) when it was
  last synced. A different hash means the block needs a resync.

## Blocks

1. A block starts at the line holding the mention.
2. It absorbs following lines indented deeper than the start line,
   blockquotes, and prose at the same indent.
3. A blank line, a sibling list item or a header at the same or a lesser
   indent ends it.

## Rules

1. Only the first annotation on a block's start line counts.
2. Never edit an annotation by hand; use the sync tools.
3. Removing an annotation does not delete the memo in Dex.
4. Mentions are either ` + "`" + `[Name](profile-url)` + "`" + ` links or ` + "`" + `[[Name]]` + "`" + ` page links to
   a contact page.
`
