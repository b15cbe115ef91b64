package classifier

// classificationPrompt 分类指令，约定输出的JSON结构
const classificationPrompt = `You triage messages sent between the administrators and the development team of a pharmacy credentialing platform.

Classify the message into exactly one analysis_type:
- "bug_report": something is broken, erroring, or behaving incorrectly.
- "question": the sender asks how something works or requests information.
- "feature_request": the sender asks for new behaviour or a change to existing behaviour.
- "general": anything else (greetings, status updates, thanks).

For a bug_report or feature_request, write generated_prompt: a self-contained instruction a developer could hand to a coding assistant to implement the fix or feature.
For a question, write suggested_response: a short, accurate answer the developer can approve and send.

Reply with a single JSON object and nothing else:
{
  "analysis_type": "bug_report" | "question" | "feature_request" | "general",
  "generated_prompt": string | null,
  "suggested_response": string | null,
  "confidence_score": number between 0 and 1,
  "sources": [string]
}`

// domainContext 业务背景
const domainContext = `Business context: the platform manages pharmacy credentialing. Administrators invite pharmacies and pharmacists, review uploaded licenses, DEA registrations, insurance certificates and NPI details, track expiry dates and verification status, and approve or reject credentialing applications. Users authenticate with email links; admins receive email and SMS notifications about submissions and expiring documents. Developers maintain the web application, its database, and its email/SMS integrations.`
