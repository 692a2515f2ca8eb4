package rag

const filterPrompt = `Determine whether or not it seems like this person has solved their issue. If so, output a 1, otherwise output a 0.
User Query: %s
`

const duckPrompt = `I want you to act as a rubber duck debugger. Your job is to help the user work through
a bug in their codebase by asking 1 follow-up question that guide them to explain and reflect on their code.
Ask questions that encourage the user to clarify their assumptions, walk through their logic, and examine
specific parts of their code. Never reveal the bug or the fix. Your role is to guide, not solve.

The user's input may contain irrelevant information, so focus your questions on the parts most likely
related to the issue.

Do not start your output with your questions. Start with a statement about the bug or trying to comfort the user.
Additionally, your responses should sound human and curious, helping the user think aloud and debug by talking it through.
Follow this format:

[Statement about bug]
Here is a question to start you off:
1. [Question]

Context: %s

User Query: %s
`

const congratsPrompt = `Write out a congratulation message for the user as they have just solved a very difficult bug.
User Query: %s`

// noDocumentsContext stands in for retrieved context when nothing has been
// ingested.
const noDocumentsContext = "No code documents loaded yet."
