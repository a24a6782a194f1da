package mcpserver

// DraftFormatContract describes the note fields and the draft file format
// accepted by create_note.
const DraftFormatContract = `# NoteHub Note Contract

Every note has a title, a content body and exactly one tag.

## Fields

| Field   | Rules                                                |
|---------|------------------------------------------------------|
| title   | required, 3 to 50 characters after trimming          |
| content | required, at most 500 characters after trimming      |
| tag     | required, one of: Todo, Work, Personal, Meeting, Shopping |

Values are trimmed before they are checked and submitted. A note that breaks
any rule is rejected before it reaches the server, with one message per field.

## Draft documents

create_note also accepts a single Markdown document in the ` + "`" + `markdown` + "`" + ` argument:

` + "```" + `markdown
---
title: Weekly standup
tag: Meeting
---

Agenda: release status, blockers.
` + "```" + `

- ` + "`" + `title` + "`" + ` may instead be given as the first ` + "`" + `# Heading` + "`" + `; the heading is
  then removed from the content.
- ` + "`" + `tag` + "`" + ` may instead be the first entry of a ` + "`" + `tags` + "`" + ` list or an inline
  ` + "`" + `#todo` + "`" + ` style hashtag naming a known tag. Tag names are case-insensitive.
- Everything after the frontmatter is the content.

## Listing

list_notes returns one page at a time (default page 1, 10 per page, newest
first). Use ` + "`" + `search` + "`" + ` to match titles and content, ` + "`" + `tag` + "`" + ` to filter and
` + "`" + `sortBy` + "`" + ` (created or updated) to change the order.
`
