package bot

const startText = `Hey %s 👋

I am MetaNiX. Reply to a video with a command:

/sv <seconds> - random sample
/trim <start> <end> - cut a range
/ss <n> - random screenshots
/mediainfo - technical details

See /help for captions, thumbnails and upload settings.`

const helpText = `🖼 Thumbnail
• Send any photo to set it as your thumbnail.
• /view_thumb - show your thumbnail
• /del_thumb - delete it

📜 Caption
• /set_caption <text> - set a custom caption
• /see_caption - show it
• /del_caption - delete it
Placeholders: {filename} {filesize} {duration}

✏️ File name
• /set_prefix, /see_prefix, /del_prefix
• /set_suffix, /see_suffix, /del_suffix

📤 Upload type
• /upload - choose document or video

✂️ Media
• /sv 30 - random 30 second sample
• /trim 01:45:06 01:45:56 or /trim 400 500
• /ss 5 - five random screenshots
• /mediainfo, /mi, /info - media details`

const captionUsage = "Give me a caption.\nExample: /set_caption 📕 {filename}\n💾 Size: {filesize}\n⏰ Duration: {duration}"

const accessDenied = "Access Denied ⚠️\nYou are not authorized to use this command."
